package app

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vk/checkgrid/internal/executor"
)

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)

	stats := runFakes(t, p)
	p.summary(stats)

	out := buf.String()
	assert.Contains(t, out, "[ RUN      ] good@generic:default+builtin")
	assert.Contains(t, out, "[       OK ] good@generic:default+builtin")
	assert.Contains(t, out, "[     FAIL ] bad@generic:default+builtin")
	assert.Contains(t, out, "(sanity: bad failed in sanity)")
	assert.Contains(t, out, "[  FAILED  ] Ran 2 test case(s) in 1 run(s) (1 failure(s))")
	assert.NotContains(t, out, "\x1b[", "no colors for a non-terminal writer")
}

func TestPrinterSummaryPassed(t *testing.T) {
	var buf bytes.Buffer
	newPrinter(&buf).summary(executor.NewStats())
	assert.Equal(t, "[  PASSED  ] Ran 0 test case(s) in 1 run(s)\n", buf.String())
}
