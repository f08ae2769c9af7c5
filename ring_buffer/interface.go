package ring_buffer

type Interface interface {
	Add(samples []int16)
	Read() []int16
	Len() int
	Cap() int
	Clear()
}
