package bridge

import (
	"github.com/santif/pgbridge/data"
	"github.com/santif/pgbridge/handle"
)

// row is a borrowed view over the cursor's current values.
// It is only valid until the stream advances or closes.
type row struct {
	owner  *connection
	fields []data.Field
	values [][]byte
}

// RowLen returns the number of items in the row
func (b *Bridge) RowLen(r handle.Token) (env Envelope[uint64]) {
	defer guard(b, opRowLen, &env)

	rw, err := handle.Unwrap[*row](b.handles, r)
	if err != nil {
		return complete(b, opRowLen, uint64(0), boundaryError(err, "row length"))
	}
	return complete(b, opRowLen, uint64(len(rw.values)), nil)
}

// RowItem returns the type name and value of item i.
// The buffers view the stream's storage and are valid until the row is invalidated;
// reading them must not overlap with advancing or closing the stream.
func (b *Bridge) RowItem(r handle.Token, i uint64) (env Envelope[RowItem]) {
	defer guard(b, opRowItem, &env)

	item, err := b.rowItem(r, i)
	return complete(b, opRowItem, item, err)
}

func (b *Bridge) rowItem(r handle.Token, i uint64) (RowItem, error) {
	rw, err := handle.Unwrap[*row](b.handles, r)
	if err != nil {
		return RowItem{}, boundaryError(err, "row item")
	}

	// Streams drop their rows under the connection lock.
	if err := rw.owner.lock(); err != nil {
		return RowItem{}, err
	}
	defer rw.owner.unlock()
	if _, err := handle.Unwrap[*row](b.handles, r); err != nil {
		return RowItem{}, boundaryError(err, "row item")
	}

	if i >= uint64(len(rw.values)) {
		return RowItem{}, newError(StatusBoundary, nil, "index %d out of range for row of %d items", i, len(rw.values))
	}

	v := rw.values[i]
	if v == nil {
		return RowItem{TypeName: Null(), Value: Null()}, nil
	}

	var typeName string
	if int(i) < len(rw.fields) {
		typeName = rw.fields[i].TypeName
	}
	return RowItem{TypeName: FromText(typeName), Value: FromBytes(v)}, nil
}

// RowClose releases the row before the stream advances
func (b *Bridge) RowClose(r handle.Token) (env Envelope[Void]) {
	defer guard(b, opRowClose, &env)

	if _, err := handle.Release[*row](b.handles, r); err != nil {
		return complete(b, opRowClose, Void{}, boundaryError(err, "close row"))
	}
	return complete(b, opRowClose, Void{}, nil)
}
