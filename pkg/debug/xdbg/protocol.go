package xdbg

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

const (
	ProtocolMagic   uint16 = 0xDB09
	ProtocolVersion uint8  = 0x01
	// HeaderSize Magic(2) + Version(1) + Type(1) + Length(4)
	HeaderSize     = 8
	MaxPayloadSize = 1 << 20
	// DefaultMaxOutputSize 为 JSON 字段开销预留 200 字节
	DefaultMaxOutputSize = MaxPayloadSize - 200
)

// MessageType 消息类型。
type MessageType uint8

const (
	MessageTypeRequest  MessageType = 0x01
	MessageTypeResponse MessageType = 0x02
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeRequest:
		return "Request"
	case MessageTypeResponse:
		return "Response"
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

// Request 客户端请求。
type Request struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Response 服务端响应。
type Response struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
	// Truncated 为 true 时 OriginalSize 为截断前的字节数
	Truncated    bool `json:"truncated,omitempty"`
	OriginalSize int  `json:"original_size,omitempty"`
}

func errorResponse(err error) *Response {
	return &Response{Error: err.Error()}
}

// outputResponse 按 UTF-8 边界截断超过 limit 的输出。
func outputResponse(output string, limit int) *Response {
	if len(output) <= limit {
		return &Response{Success: true, Output: output}
	}
	return &Response{
		Success:      true,
		Output:       TruncateUTF8(output, limit),
		Truncated:    true,
		OriginalSize: len(output),
	}
}

// TruncateUTF8 截断到不超过 maxBytes 字节，不拆分多字节字符。
func TruncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

// WriteMessage 编码并写出一条消息。
func WriteMessage(w io.Writer, typ MessageType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("xdbg: marshal payload: %w", err)
	}
	if len(body) > MaxPayloadSize {
		return ErrMessageTooLarge
	}
	msg := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint16(msg[0:2], ProtocolMagic)
	msg[2] = ProtocolVersion
	msg[3] = byte(typ)
	binary.BigEndian.PutUint32(msg[4:8], uint32(len(body))) //nolint:gosec // 已检查不超过 MaxPayloadSize
	copy(msg[HeaderSize:], body)
	_, err = w.Write(msg)
	return err
}

// ReadMessage 读取一条 want 类型的消息并解码到 target。
// 对端在消息边界关闭连接时返回 ErrConnectionClosed。
func ReadMessage(r io.Reader, want MessageType, target any) error {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrConnectionClosed
		}
		return fmt.Errorf("xdbg: read header: %w", err)
	}
	if binary.BigEndian.Uint16(header[0:2]) != ProtocolMagic {
		return fmt.Errorf("%w: bad magic", ErrInvalidMessage)
	}
	if v := header[2]; v != ProtocolVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidMessage, v)
	}
	if typ := MessageType(header[3]); typ != want {
		return fmt.Errorf("%w: expected %s, got %s", ErrInvalidMessage, want, typ)
	}
	n := binary.BigEndian.Uint32(header[4:8])
	if n > MaxPayloadSize {
		return ErrMessageTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("xdbg: read payload: %w", err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return nil
}
