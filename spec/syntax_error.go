package spec

type SyntaxError struct {
	Pos     Position
	Message string
}

func (e *SyntaxError) Error() string {
	return e.Message
}

func (l *lexer) raise(pos Position, message string) error {
	return &SyntaxError{
		Pos:     pos,
		Message: message,
	}
}
