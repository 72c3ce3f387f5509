package sqlload

import (
	"context"
	"strings"

	"github.com/jjeffery/sqlload/dataloader"
	"github.com/jjeffery/sqlload/private/keycodec"
)

// fetchByKeys returns the batch function for point loads of kind.
func (sess *Session) fetchByKeys(k *Kind) dataloader.BatchFunc {
	return func(ctx context.Context, keys []interface{}) ([]dataloader.Result, error) {
		res, err := sess.adapter.FetchByKeys(ctx, k, keys)
		if err != nil {
			return nil, &AdapterError{Batch: k.Name, Keys: keys, Err: err}
		}
		results := make([]dataloader.Result, len(keys))
		for i, key := range keys {
			enc, err := keycodec.Encode(key)
			if err != nil {
				results[i].Err = err
				continue
			}
			e, err := res.get(enc)
			if err != nil {
				results[i].Err = err
				continue
			}
			if e != nil {
				results[i].Value = e
			}
		}
		return results, nil
	}
}

// fetchByForeignKey returns the batch function for loads of a scoped relation.
func (sess *Session) fetchByForeignKey(rel *Relation) dataloader.BatchFunc {
	batch := rel.Owner + "/" + rel.Name
	return func(ctx context.Context, keys []interface{}) ([]dataloader.Result, error) {
		groups, err := sess.adapter.FetchByForeignKey(ctx, rel, keys)
		if err != nil {
			return nil, &AdapterError{Batch: batch, Keys: keys, Err: err}
		}
		return groupResults(groups, keys), nil
	}
}

// fetchByFilter returns the batch function for loads of kind by the columns.
func (sess *Session) fetchByFilter(fa FilterAdapter, k *Kind, columns []string) dataloader.BatchFunc {
	fp := Fingerprint{Kind: k.Name, Filter: strings.Join(columns, ",")}
	return func(ctx context.Context, keys []interface{}) ([]dataloader.Result, error) {
		groups, err := fa.FetchByFilter(ctx, k, columns, keys)
		if err != nil {
			return nil, &AdapterError{Batch: fp.Batch(), Keys: keys, Err: err}
		}
		return groupResults(groups, keys), nil
	}
}

func groupResults(groups *Groups, keys []interface{}) []dataloader.Result {
	results := make([]dataloader.Result, len(keys))
	for i, key := range keys {
		enc, err := keycodec.Encode(key)
		if err != nil {
			results[i].Err = err
			continue
		}
		c, err := groups.get(enc)
		if err != nil {
			results[i].Err = err
			continue
		}
		results[i].Value = c
	}
	return results
}
