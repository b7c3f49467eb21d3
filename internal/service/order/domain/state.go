// internal/service/order/domain/state.go
package domain

// State 定义了订单的生命周期状态
type State string

const (
	StateDraft          State = "DRAFT"           // 草稿，未占用任何台账
	StatePendingPayment State = "PENDING_PAYMENT" // 已预占库存，等待用户支付
	StatePaid           State = "PAID"            // 已支付
	StateShipped        State = "SHIPPED"         // 已发货，库存已扣减
	StateCompleted      State = "COMPLETED"       // 已完成
	StateNeedResubmit   State = "NEED_RESUBMIT"   // 需要用户重新提交（改价、缺货等）
	StateCancelled      State = "CANCELLED"       // 已取消 (用户主动或系统超时)
)

var transitions = map[State][]State{
	StateDraft:          {StatePendingPayment, StateNeedResubmit, StateCancelled},
	StatePendingPayment: {StatePaid, StateNeedResubmit, StateCancelled},
	StatePaid:           {StateShipped, StateNeedResubmit, StateCancelled},
	StateShipped:        {StateCompleted, StateNeedResubmit, StateCancelled},
	StateNeedResubmit:   {StatePendingPayment, StatePaid, StateCancelled}, // 已支付的订单重新提交后回到 PAID
}

// CanTransitionTo 状态机是否允许 s → next
func (s State) CanTransitionTo(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// IsTerminal 终态不再变化
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// ReservationState 订单在台账上的占用情况，决定取消/过期时是否需要释放
type ReservationState string

const (
	ReservationNone     ReservationState = "NONE"     // 从未预占
	ReservationHeld     ReservationState = "RESERVED" // 持有预占
	ReservationConsumed ReservationState = "CONSUMED" // 已扣减，不可释放
	ReservationReleased ReservationState = "RELEASED" // 已释放
)
