package ksync

// Communicator is a many-to-many synchronous rendezvous for 32-bit words
// (§4.4). Every deposited word is taken by exactly one Listen. A Speak
// returns once a listener is waiting and its word is deposited; it does
// not wait for that listener to take the word.
type Communicator struct {
	mu           Mutex
	speakerCond  *Condition
	listenerCond *Condition

	wordReady    bool
	word         int32
	numSpeakers  int
	numListeners int
}

// NewCommunicator allocates a new communicator.
func NewCommunicator() *Communicator {
	c := &Communicator{}
	c.speakerCond = NewCondition(&c.mu)
	c.listenerCond = NewCondition(&c.mu)
	return c
}

// Speak waits for a listener to be present and for no other word to be
// in flight, deposits word and wakes the waiting listeners. It returns
// right after depositing; it does not wait for a listener to take the
// word.
func (c *Communicator) Speak(word int32) {
	who := new(struct{})
	c.mu.Acquire(who)

	c.numSpeakers++
	for c.numListeners == 0 || c.wordReady {
		c.speakerCond.Sleep(who)
	}
	c.word = word
	c.wordReady = true
	c.listenerCond.WakeAll(who)
	c.numSpeakers--

	c.mu.Release(who)
}

// Listen waits for a word to be in flight and returns it, admitting
// speakers in the meantime by waking them on every iteration.
func (c *Communicator) Listen() int32 {
	who := new(struct{})
	c.mu.Acquire(who)

	c.numListeners++
	for !c.wordReady {
		c.speakerCond.WakeAll(who)
		c.listenerCond.Sleep(who)
	}
	w := c.word
	c.wordReady = false
	c.numListeners--

	c.mu.Release(who)
	return w
}
