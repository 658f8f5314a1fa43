package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	cases := map[string]string{
		"":                                "",
		"  feito  ":                       "feito",
		"<b>cortei</b> redes":             "cortei redes",
		`<script>alert(1)</script>ok`:     "ok",
		"café & pão":                      "café & pão",
		`<a href="javascript:x">link</a>`: "link",
	}
	for in, want := range cases {
		assert.Equal(t, want, Text(in), "input %q", in)
	}
}
