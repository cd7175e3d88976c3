package ports

import "github.com/layer-3/demogate/core"

// Tokenizer converts between sessions and signed tokens
type Tokenizer interface {
	SessionToToken(session *core.Session) (string, error)
	TokenToSession(token string) (*core.Session, error)
}
