package keycodec

import "testing"

func TestDirectionInvert(t *testing.T) {
	cases := []struct {
		in, want Direction
	}{
		{ASC, DESC},
		{DESC, ASC},
		{AASC, ADESC},
		{ADESC, AASC},
	}
	for _, c := range cases {
		if got := c.in.Invert(); got != c.want {
			t.Fatalf("Invert(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}
