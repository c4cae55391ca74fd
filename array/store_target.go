// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package array

import (
	"context"

	"github.com/ndarray/zarrs/byterange"
	"github.com/ndarray/zarrs/codec"
	"github.com/ndarray/zarrs/storage"
)

// storeTarget adapts one store key to codec.PartialEncodeTarget,
// letting a codec (sharding) perform its own partial decode/encode
// against the abstract store contract without depending on the
// storage package itself.
type storeTarget struct {
	ctx   context.Context
	store storage.Store
	key   storage.Key
}

func (t *storeTarget) Size() (uint64, bool, error) {
	n, err := t.store.SizeKey(t.ctx, t.key)
	if err != nil {
		if storage.IsNotFound(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return n, true, nil
}

func (t *storeTarget) ReadRange(offset, length uint64) ([]byte, error) {
	out, err := t.store.GetPartialValuesKey(t.ctx, t.key, []byterange.Range{byterange.FromStartLength(offset, length)})
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, codec.ErrChunkAbsent
		}
		return nil, err
	}
	return out[0], nil
}

func (t *storeTarget) WriteRange(offset uint64, data []byte) error {
	return t.store.SetPartialValues(t.ctx, t.key, []storage.PartialValue{{Offset: offset, Data: data}})
}
