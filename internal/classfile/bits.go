package classfile

import "math"

func math32FromBits(v uint32) float32 { return math.Float32frombits(v) }
func math64FromBits(v uint64) float64 { return math.Float64frombits(v) }
