//go:build !(linux && arm)

package fob

// SimButton is a software stand-in for SW1 used off-target and in tests.
type SimButton struct {
	Low bool
}

func (b *SimButton) SampleLow() bool {
	return b.Low
}
