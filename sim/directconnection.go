package sim

import "log"

// DirectConnection connects ports without latency. Messages sent in a cycle
// are delivered in the same cycle if the destination has room; otherwise
// they wait in the sender's outgoing buffer.
type DirectConnection struct {
	*TickingComponent

	nextPortID int
	ports      []Port
	byName     map[RemotePort]Port
}

// NewDirectConnection creates a new DirectConnection object
func NewDirectConnection(
	name string,
	engine Engine,
	freq Freq,
) *DirectConnection {
	c := new(DirectConnection)
	c.TickingComponent = NewSecondaryTickingComponent(name, engine, freq, c)
	c.byName = make(map[RemotePort]Port)

	return c
}

// PlugIn marks the port connects to this DirectConnection.
func (c *DirectConnection) PlugIn(port Port) {
	c.Lock()
	defer c.Unlock()

	if _, found := c.byName[port.AsRemote()]; found {
		log.Panicf("port %s is already connected", port.Name())
	}

	c.ports = append(c.ports, port)
	c.byName[port.AsRemote()] = port

	port.SetConnection(c)
}

// Unplug marks the port no longer connects to this DirectConnection.
func (c *DirectConnection) Unplug(_ Port) {
	panic("not implemented")
}

// NotifyAvailable is called by a port to notify that the connection can
// deliver to the port again.
func (c *DirectConnection) NotifyAvailable(_ Port) {
	c.TickNow()
}

// NotifySend is called by a port to notify that the connection can start
// to tick now.
func (c *DirectConnection) NotifySend() {
	c.TickNow()
}

// Tick updates the states of the connection and delivers messages.
func (c *DirectConnection) Tick() bool {
	madeProgress := false

	for i := 0; i < len(c.ports); i++ {
		portID := (i + c.nextPortID) % len(c.ports)
		madeProgress = c.forwardMany(c.ports[portID]) || madeProgress
	}

	if len(c.ports) > 0 {
		c.nextPortID = (c.nextPortID + 1) % len(c.ports)
	}

	return madeProgress
}

func (c *DirectConnection) forwardMany(port Port) bool {
	madeProgress := false

	for {
		head := port.PeekOutgoing()
		if head == nil {
			break
		}

		dst, found := c.byName[head.Meta().Dst]
		if !found {
			log.Panicf("%s: destination %s is not connected",
				c.Name(), head.Meta().Dst)
		}

		if err := dst.Deliver(head); err != nil {
			break
		}

		c.InvokeHook(HookCtx{
			Domain: c,
			Pos:    HookPosConnDeliver,
			Item:   head,
		})

		madeProgress = true

		port.RetrieveOutgoing()
	}

	return madeProgress
}
