package main

import "fmt"

// nullCore is a placeholder engine.Core for exercising the transport and
// synchronization engine without a real emulator attached: its "state" is
// just a frame counter, which is trivially deterministic and serializable.
// A real host wires in its own emulator core in place of this one.
type nullCore struct {
	frame uint64
}

func (c *nullCore) Step() error {
	c.frame++
	return nil
}

func (c *nullCore) SerializeSize() int { return 8 }

func (c *nullCore) Serialize(buf []byte) error {
	if len(buf) != 8 {
		return fmt.Errorf("nullCore: bad buffer size %d", len(buf))
	}
	for i := 0; i < 8; i++ {
		buf[i] = byte(c.frame >> (8 * i))
	}
	return nil
}

func (c *nullCore) Deserialize(buf []byte) error {
	if len(buf) != 8 {
		return fmt.Errorf("nullCore: bad buffer size %d", len(buf))
	}
	var frame uint64
	for i := 0; i < 8; i++ {
		frame |= uint64(buf[i]) << (8 * i)
	}
	c.frame = frame
	return nil
}
