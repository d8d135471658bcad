package error

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// SpecError is an error detected in a grammar file. When the position is
// known, it renders as `message (source row:col)` followed by the
// offending source line.
type SpecError struct {
	Cause      error
	FilePath   string
	SourceName string
	Row        int
	Col        int
}

func (e *SpecError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v", e.Cause)
	if e.Row != 0 {
		if e.SourceName != "" {
			fmt.Fprintf(&b, " (%v %v:%v)", e.SourceName, e.Row, e.Col)
		} else {
			fmt.Fprintf(&b, " (%v:%v)", e.Row, e.Col)
		}
	} else if e.SourceName != "" {
		fmt.Fprintf(&b, " (%v)", e.SourceName)
	}

	line := readLine(e.FilePath, e.Row)
	if line != "" {
		fmt.Fprintf(&b, "\n    %v", line)
	}

	return b.String()
}

type SpecErrors []*SpecError

func (e SpecErrors) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v", e[0])
	for _, err := range e[1:] {
		fmt.Fprintf(&b, "\n%v", err)
	}
	return b.String()
}

func readLine(filePath string, row int) string {
	if filePath == "" || row <= 0 {
		return ""
	}

	f, err := os.Open(filePath)
	if err != nil {
		return ""
	}
	defer f.Close()

	i := 1
	s := bufio.NewScanner(f)
	for s.Scan() {
		if i == row {
			return s.Text()
		}
		i++
	}

	return ""
}
