// internal/service/order/domain/event.go
package domain

// Command 订单生命周期命令，既可以来自 HTTP 也可以来自 Kafka
type Command string

const (
	CommandSubmit          Command = "submit"
	CommandCancel          Command = "cancel"
	CommandPay             Command = "pay"
	CommandShip            Command = "ship"
	CommandComplete        Command = "complete"
	CommandRequestResubmit Command = "resubmit-request"
	CommandResubmit        Command = "resubmit"
	CommandExpire          Command = "expire"
)

// LifecycleCommand 是 order-lifecycle 主题上的消息体
type LifecycleCommand struct {
	Command Command `json:"command"`
	OrderID string  `json:"orderId"`
	Actor   string  `json:"actor,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}
