package fixedpoint_test

import (
	"testing"

	"github.com/sohnryang/pintos/fixedpoint"
	"github.com/stretchr/testify/assert"
)

func TestFromIntRoundTrip(t *testing.T) {
	assert.Equal(t, 5, fixedpoint.FromInt(5).ToIntTrunc())
	assert.Equal(t, -5, fixedpoint.FromInt(-5).ToIntTrunc())
}

func TestToIntRound(t *testing.T) {
	half := fixedpoint.Fixed(fixedpoint.Unit / 2)
	assert.Equal(t, 1, half.ToIntRound())
	assert.Equal(t, 0, half.Sub(1).ToIntRound())
	assert.Equal(t, -1, (-half).ToIntRound())
}

func TestArithmetic(t *testing.T) {
	a := fixedpoint.FromInt(3)
	b := fixedpoint.FromInt(2)

	assert.Equal(t, fixedpoint.FromInt(5), a.Add(b))
	assert.Equal(t, fixedpoint.FromInt(1), a.Sub(b))
	assert.Equal(t, fixedpoint.FromInt(6), a.Mul(b))
	assert.InDelta(t, 1.5, float64(a.Div(b))/fixedpoint.Unit, 0.001)
}

func TestMLFQSDecay(t *testing.T) {
	// load_avg = 1, recent_cpu decays by 2*load_avg/(2*load_avg+1).
	loadAvg := fixedpoint.FromInt(1)
	decay := loadAvg.MulInt(2).Div(loadAvg.MulInt(2).Add(fixedpoint.FromInt(1)))
	recentCPU := fixedpoint.FromInt(10)
	next := decay.Mul(recentCPU).Add(fixedpoint.FromInt(0))
	assert.InDelta(t, 6.67, float64(next)/fixedpoint.Unit, 0.01)
}
