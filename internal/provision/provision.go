// Package provision creates the indexes the relay's collection-group queries
// need: the thread lookup on the binding group and the pending-message
// listener on the messages group.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	firestoreadmin "google.golang.org/api/firestore/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var ErrProvisioningFailed = errors.New("index provisioning failed")

type Outcome int

const (
	Failed Outcome = iota
	Acknowledged
	AlreadyExists
)

func (o Outcome) String() string {
	switch o {
	case Acknowledged:
		return "acknowledged"
	case AlreadyExists:
		return "already_exists"
	default:
		return "failed"
	}
}

// Target is one index the relay depends on.
type Target int

const (
	// ThreadLookup is slackThreadTs ASC, __name__ ASC over the binding group.
	ThreadLookup Target = iota
	// PendingMessages is a collection-group scope index on the messages
	// group's status field, which Firestore does not keep by default.
	PendingMessages
)

func (t Target) String() string {
	if t == PendingMessages {
		return "pending_messages"
	}
	return "thread_lookup"
}

// IndexRequest names the collection groups to index. An empty MessageGroup
// skips the listener index.
type IndexRequest struct {
	ProjectID    string
	Database     string
	ThreadGroup  string
	MessageGroup string
}

func (r IndexRequest) group(name string) string {
	db := r.Database
	if db == "" {
		db = "(default)"
	}
	return fmt.Sprintf("projects/%s/databases/%s/collectionGroups/%s", r.ProjectID, db, name)
}

func (r IndexRequest) threadIndex() *firestoreadmin.GoogleFirestoreAdminV1Index {
	return &firestoreadmin.GoogleFirestoreAdminV1Index{
		QueryScope: "COLLECTION_GROUP",
		Fields: []*firestoreadmin.GoogleFirestoreAdminV1IndexField{
			{FieldPath: "slackThreadTs", Order: "ASCENDING"},
			{FieldPath: "__name__", Order: "ASCENDING"},
		},
	}
}

// statusField is a single-field override. It replaces the field's automatic
// settings, so the collection scope defaults are listed alongside the
// collection group one.
func (r IndexRequest) statusField() *firestoreadmin.GoogleFirestoreAdminV1Field {
	single := func(scope, order string) *firestoreadmin.GoogleFirestoreAdminV1Index {
		return &firestoreadmin.GoogleFirestoreAdminV1Index{
			QueryScope: scope,
			Fields:     []*firestoreadmin.GoogleFirestoreAdminV1IndexField{{FieldPath: "status", Order: order}},
		}
	}
	return &firestoreadmin.GoogleFirestoreAdminV1Field{
		IndexConfig: &firestoreadmin.GoogleFirestoreAdminV1IndexConfig{
			Indexes: []*firestoreadmin.GoogleFirestoreAdminV1Index{
				single("COLLECTION", "ASCENDING"),
				single("COLLECTION", "DESCENDING"),
				single("COLLECTION_GROUP", "ASCENDING"),
			},
		},
	}
}

type Provisioner struct {
	svc *firestoreadmin.Service
	req IndexRequest
}

// New builds a provisioner using the Firestore Admin API. Without options
// Application Default Credentials are used.
func New(ctx context.Context, req IndexRequest, opts ...option.ClientOption) (*Provisioner, error) {
	if req.ProjectID == "" || req.ThreadGroup == "" {
		return nil, fmt.Errorf("create provisioner: project id and thread collection group are required")
	}
	svc, err := firestoreadmin.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore admin service: %w", err)
	}
	return &Provisioner{svc: svc, req: req}, nil
}

// Targets lists the indexes this provisioner will create.
func (p *Provisioner) Targets() []Target {
	if p.req.MessageGroup == "" {
		return []Target{ThreadLookup}
	}
	return []Target{ThreadLookup, PendingMessages}
}

// Provision issues one admin call for t. An index that already exists is a
// success. It does not retry.
func (p *Provisioner) Provision(ctx context.Context, t Target) (Outcome, error) {
	var (
		parent string
		group  string
		op     *firestoreadmin.GoogleLongrunningOperation
		err    error
	)
	switch t {
	case PendingMessages:
		group = p.req.MessageGroup
		parent = p.req.group(group) + "/fields/status"
		op, err = p.svc.Projects.Databases.CollectionGroups.Fields.
			Patch(parent, p.req.statusField()).
			UpdateMask("indexConfig").
			Context(ctx).
			Do()
	default:
		group = p.req.ThreadGroup
		parent = p.req.group(group)
		op, err = p.svc.Projects.Databases.CollectionGroups.Indexes.
			Create(parent, p.req.threadIndex()).
			Context(ctx).
			Do()
	}
	log := slog.With("index", t.String(), "collection_group", group)
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusConflict {
			log.Info("support index already exists")
			return AlreadyExists, nil
		}
		log.Error("index creation failed", "error", err)
		return Failed, fmt.Errorf("%w: %s on %s: %w", ErrProvisioningFailed, t, parent, err)
	}
	log.Info("support index creation requested", "operation", op.Name)
	return Acknowledged, nil
}

// Retryable reports whether a failed Provision call should be tried again.
// Every failure is, including 4xx answers such as a 403 while IAM grants
// propagate; only a finished context stops the retries.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
