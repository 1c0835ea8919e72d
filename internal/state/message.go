package state

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/user/supportrelay/internal/docpath"
	"github.com/user/supportrelay/internal/types"
)

// MessageStore reads and writes message documents under the configured
// messages collection. Status only moves away from pending, and only once.
type MessageStore struct {
	client *firestore.Client
	path   docpath.Template
}

func NewMessageStore(client *firestore.Client, path docpath.Template) *MessageStore {
	return &MessageStore{client: client, path: path}
}

func (s *MessageStore) collection(userID types.UserID) (*firestore.CollectionRef, error) {
	p, err := s.path.Expand(string(userID))
	if err != nil {
		return nil, err
	}
	return s.client.Collection(p), nil
}

func (s *MessageStore) doc(ref types.MessageRef) (*firestore.DocumentRef, error) {
	coll, err := s.collection(ref.UserID)
	if err != nil {
		return nil, err
	}
	if ref.MessageID == "" {
		return nil, fmt.Errorf("empty message id for %s", ref.UserID)
	}
	return coll.Doc(string(ref.MessageID)), nil
}

// Insert adds msg with an auto-generated id. A zero CreatedAt is filled in
// by the server.
func (s *MessageStore) Insert(ctx context.Context, userID types.UserID, msg *types.Message) (types.MessageID, error) {
	coll, err := s.collection(userID)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	ref, _, err := coll.Add(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("insert message for %s: %w", userID, err)
	}
	return types.MessageID(ref.ID), nil
}

// Get loads one message.
func (s *MessageStore) Get(ctx context.Context, ref types.MessageRef) (*types.Message, error) {
	doc, err := s.doc(ref)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	snap, err := doc.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", ref, err)
	}
	var msg types.Message
	if err := snap.DataTo(&msg); err != nil {
		return nil, fmt.Errorf("decode message %s: %w", ref, err)
	}
	return &msg, nil
}

// UpdateDeliveryOutcome records a final status and the thread it went to.
func (s *MessageStore) UpdateDeliveryOutcome(ctx context.Context, ref types.MessageRef, st types.Status, threadTS types.ThreadTS) error {
	if !st.Final() {
		return fmt.Errorf("update message %s: %q is not a delivery outcome", ref, st)
	}
	updates := []firestore.Update{{Path: fieldStatus, Value: string(st)}}
	if threadTS != "" {
		updates = append(updates, firestore.Update{Path: fieldSlackThreadTS, Value: string(threadTS)})
	}
	if err := s.transition(ctx, ref, threadTS, updates); err != nil {
		return fmt.Errorf("update message %s: %w", ref, err)
	}
	return nil
}

// MarkFailed moves a pending message to failed with the given error kind.
func (s *MessageStore) MarkFailed(ctx context.Context, ref types.MessageRef, kind types.ErrorKind) error {
	updates := []firestore.Update{
		{Path: fieldStatus, Value: string(types.StatusFailed)},
		{Path: fieldError, Value: string(kind)},
	}
	if err := s.transition(ctx, ref, "", updates); err != nil {
		return fmt.Errorf("mark message %s failed: %w", ref, err)
	}
	return nil
}

// transition applies updates only while the message is still pending, and
// refuses to replace a thread ts that is already set.
func (s *MessageStore) transition(ctx context.Context, ref types.MessageRef, threadTS types.ThreadTS, updates []firestore.Update) error {
	doc, err := s.doc(ref)
	if err != nil {
		return err
	}
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		if err != nil {
			return err
		}
		var current types.Message
		if err := snap.DataTo(&current); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		if err := checkTransition(current, threadTS); err != nil {
			return err
		}
		return tx.Update(doc, updates)
	})
}

func checkTransition(current types.Message, threadTS types.ThreadTS) error {
	if current.Status.Final() {
		return fmt.Errorf("%w: status is %s", types.ErrStatusFinal, current.Status)
	}
	if threadTS != "" && current.SlackThreadTS != "" && current.SlackThreadTS != threadTS {
		return fmt.Errorf("thread ts already set to %s", current.SlackThreadTS)
	}
	return nil
}
