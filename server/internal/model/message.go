package model

// Message 是存储的最小单元：作者可选，正文必填。
// Message 没有自己的 ID，身份完全由它在 Store 中的位置决定。
type Message struct {
	Author   *string `json:"author"`
	Contents string  `json:"contents"`
}

// Clone 返回深拷贝，调用方修改 Author 不会影响存储内的数据。
func (m Message) Clone() Message {
	out := Message{Contents: m.Contents}
	if m.Author != nil {
		author := *m.Author
		out.Author = &author
	}
	return out
}
