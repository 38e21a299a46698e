package client

import (
	"context"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/bizportal/portal/internal/invoicing"
)

// IdempotencyHeader is the header the server uses to deduplicate creates.
const IdempotencyHeader = invoicing.IdempotencyHeader

type idempotencyCtxKey struct{}

// WithIdempotencyKey attaches key to requests made with ctx. Reusing a key
// across retries makes the create safe to repeat.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyCtxKey{}, key)
}

func idempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyCtxKey{}).(string)
	return key
}

func ensureIdempotencyKey(ctx context.Context) context.Context {
	if idempotencyKey(ctx) != "" {
		return ctx
	}
	return WithIdempotencyKey(ctx, uuid.NewString())
}

// ListOptions are the paging and search parameters every list accepts.
type ListOptions struct {
	Page    int
	PerPage int
	Search  string
	Sort    string
	Desc    bool
	// Extra carries module specific filters such as status or owner_id.
	Extra map[string]string
}

func (o ListOptions) values() url.Values {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(o.PerPage))
	}
	if o.Search != "" {
		q.Set("search", o.Search)
	}
	if o.Sort != "" {
		q.Set("sort", o.Sort)
		if o.Desc {
			q.Set("dir", "desc")
		}
	}
	for k, v := range o.Extra {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q
}

func idPath(prefix string, id int64, suffix ...string) string {
	p := prefix + "/" + strconv.FormatInt(id, 10)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}
