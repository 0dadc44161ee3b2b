package serializer

// Serializer 抽象了“对象 <-> 字节流”的序列化能力。
//
// 目前用于管理接口输出聊天室与进程状态快照。
type Serializer interface {
	// Marshal 将任意对象编码为字节序列。
	Marshal(v any) ([]byte, error)

	// Unmarshal 将字节序列解码到目标对象。
	//
	// v 通常为指针类型，用于接收解码结果。
	Unmarshal(data []byte, v any) error
}
