package lib

// Progress receives one mark per unit of work processed.
type Progress interface {
	Start(name string, total int)
	Increment(mark string)
	Stop()
}

type NoProgress struct{}

func (p *NoProgress) Start(name string, total int) {}
func (p *NoProgress) Increment(mark string)        {}
func (p *NoProgress) Stop()                        {}
