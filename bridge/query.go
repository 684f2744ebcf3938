package bridge

import (
	"github.com/santif/pgbridge/data"
	"github.com/santif/pgbridge/handle"
	"github.com/santif/pgbridge/observability"
)

// query is a statement being built against a connection.
// It refers to the connection by token so a closed connection is noticed.
type query struct {
	conn   handle.Token
	sql    string
	params []data.Param
}

// NewQuery starts a statement on conn
func (b *Bridge) NewQuery(conn handle.Token, sql string) (env Envelope[handle.Token]) {
	defer guard(b, opNewQuery, &env)

	if _, err := b.requireConn(conn); err != nil {
		return complete(b, opNewQuery, handle.Nil, err)
	}
	tok := handle.Wrap(b.handles, &query{conn: conn, sql: sql})
	return complete(b, opNewQuery, tok, nil)
}

// AddParam encodes p and appends it to the query's parameters.
// Parameters bind positionally in the order they are added; a null value binds SQL NULL.
func (b *Bridge) AddParam(q handle.Token, p QueryParam) (env Envelope[Void]) {
	defer guard(b, opAddParam, &env)

	err := b.addParam(q, p)
	return complete(b, opAddParam, Void{}, err)
}

func (b *Bridge) addParam(q handle.Token, p QueryParam) error {
	qry, err := handle.Unwrap[*query](b.handles, q)
	if err != nil {
		return boundaryError(err, "add parameter")
	}
	if _, err := b.requireConn(qry.conn); err != nil {
		return err
	}

	param, fallback, err := b.encoder.Encode(p, b.strict.Load())
	if err != nil {
		return err
	}
	if fallback {
		tag, _ := p.TypeName.Text()
		b.metrics.EncodingFallback(tag)
		b.logger.Warn("unknown parameter type, sending raw bytes",
			observability.NewField("tag", tag),
			observability.NewField("position", len(qry.params)+1),
		)
	}

	qry.params = append(qry.params, param)
	return nil
}
