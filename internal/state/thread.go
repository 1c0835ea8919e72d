package state

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/user/supportrelay/internal/docpath"
	"github.com/user/supportrelay/internal/types"
)

// ThreadStore keeps one binding document per user at the configured
// default-thread path. Bindings are written once and never changed.
type ThreadStore struct {
	client *firestore.Client
	path   docpath.Template
}

func NewThreadStore(client *firestore.Client, path docpath.Template) *ThreadStore {
	return &ThreadStore{client: client, path: path}
}

func (s *ThreadStore) doc(userID types.UserID) (*firestore.DocumentRef, error) {
	p, err := s.path.Expand(string(userID))
	if err != nil {
		return nil, err
	}
	return s.client.Doc(p), nil
}

// GetBinding returns nil, nil when the user has no thread yet.
func (s *ThreadStore) GetBinding(ctx context.Context, userID types.UserID) (*types.ThreadBinding, error) {
	ref, err := s.doc(userID)
	if err != nil {
		return nil, fmt.Errorf("get thread binding: %w", err)
	}
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get thread binding for %s: %w", userID, err)
	}
	if !snap.Exists() {
		return nil, nil
	}
	var b types.ThreadBinding
	if err := snap.DataTo(&b); err != nil {
		return nil, fmt.Errorf("decode thread binding for %s: %w", userID, err)
	}
	if b.SlackThreadTS == "" {
		return nil, nil
	}
	return &b, nil
}

// CreateBinding sets the user's thread inside a transaction. If a different
// thread is already bound, that thread is returned with ErrBindingExists.
func (s *ThreadStore) CreateBinding(ctx context.Context, userID types.UserID, threadTS types.ThreadTS) (types.ThreadTS, error) {
	if threadTS == "" {
		return "", fmt.Errorf("create thread binding for %s: empty thread ts", userID)
	}
	ref, err := s.doc(userID)
	if err != nil {
		return "", fmt.Errorf("create thread binding: %w", err)
	}

	var bound types.ThreadTS
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		bound = ""
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if snap != nil && snap.Exists() {
			if v, err := snap.DataAt(fieldSlackThreadTS); err == nil {
				if existing, ok := v.(string); ok && existing != "" {
					bound = types.ThreadTS(existing)
					return nil
				}
			}
		}
		bound = threadTS
		return tx.Set(ref, map[string]any{
			fieldSlackThreadTS:   string(threadTS),
			fieldThreadCreatedAt: firestore.ServerTimestamp,
		}, firestore.MergeAll)
	})
	if err != nil {
		return "", fmt.Errorf("create thread binding for %s: %w", userID, err)
	}
	if bound != threadTS {
		return bound, types.ErrBindingExists
	}
	return bound, nil
}

// ResolveUserByThread finds the binding document holding threadTS across the
// binding collection group. At most two documents are read.
func (s *ThreadStore) ResolveUserByThread(ctx context.Context, threadTS types.ThreadTS) (types.UserID, error) {
	iter := s.client.CollectionGroup(s.path.CollectionID()).
		Where(fieldSlackThreadTS, "==", string(threadTS)).
		Limit(2).
		Documents(ctx)
	defer iter.Stop()

	docs, err := iter.GetAll()
	if err != nil {
		return "", fmt.Errorf("query thread %s: %w", threadTS, err)
	}
	paths := make([]string, len(docs))
	for i, d := range docs {
		paths[i] = d.Ref.Path
	}
	return resolveFromPaths(s.path, threadTS, paths)
}

var errForeignBinding = errors.New("binding document outside configured path")

func resolveFromPaths(tmpl docpath.Template, threadTS types.ThreadTS, paths []string) (types.UserID, error) {
	switch len(paths) {
	case 0:
		return "", types.ErrThreadUnbound
	case 1:
		userID, ok := tmpl.Match(paths[0])
		if !ok {
			return "", fmt.Errorf("%w: %s does not match %s", errForeignBinding, docpath.Relative(paths[0]), tmpl)
		}
		return types.UserID(userID), nil
	default:
		rel := make([]string, len(paths))
		for i, p := range paths {
			rel[i] = docpath.Relative(p)
		}
		return "", &types.AmbiguousThreadError{ThreadTS: threadTS, Paths: rel}
	}
}
