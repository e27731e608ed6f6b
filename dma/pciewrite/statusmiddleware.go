package pciewrite

// statusMiddleware drains the status queue to the Status port.
type statusMiddleware struct {
	*Comp
}

func (m *statusMiddleware) Tick() bool {
	item := m.statusQueue.Peek()
	if item == nil {
		return false
	}

	if err := m.statusPort.Send(item.(*WriteDescStatus)); err != nil {
		return false
	}

	m.statusQueue.Pop()

	return true
}
