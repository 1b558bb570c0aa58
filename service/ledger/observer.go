package ledger

import "context"

type multiObserver []ReceiptObserver

func (m multiObserver) ReceiptFinalized(ctx context.Context, chain string, r *Receipt) {
	for _, o := range m {
		o.ReceiptFinalized(ctx, chain, r)
	}
}

// Observers combines multiple receipt observers into one. Nil entries are
// skipped; with no non-nil entries it returns nil.
func Observers(obs ...ReceiptObserver) ReceiptObserver {
	var out multiObserver
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
