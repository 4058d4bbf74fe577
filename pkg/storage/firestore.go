package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/renacsync/pkg/log"
	"github.com/raterudder/renacsync/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const pointsCollection = "points"

// FirestoreProvider implements the Database interface using Google Cloud Firestore.
// Each object is a document in the "points" collection holding its metadata
// and latest state as JSON strings.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// an empty project ID is detected from the environment
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) pointDoc(id string) (*firestore.DocumentRef, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	return f.client.Collection(pointsCollection).Doc(id), nil
}

// GetSettings retrieves the dynamic configuration from the "config/settings" document.
func (f *FirestoreProvider) GetSettings(ctx context.Context) (types.Settings, int, error) {
	doc, err := f.client.Collection("config").Doc("settings").Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			// Return default settings if not found
			return types.Settings{}, 0, nil
		}
		return types.Settings{}, 0, fmt.Errorf("failed to fetch settings doc: %w", err)
	}

	// Read version if available (default 0)
	var version int
	if v, err := doc.DataAt("version"); err == nil {
		if vInt, ok := v.(int64); ok {
			version = int(vInt)
		}
	}

	jsonStr, err := stringField(doc, "json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "settings doc json invalid", slog.Any("err", err))
		return types.Settings{}, 0, fmt.Errorf("settings document: %w", err)
	}

	var s types.Settings
	if err := json.Unmarshal([]byte(jsonStr), &s); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal settings json", slog.Any("err", err))
		return types.Settings{}, 0, fmt.Errorf("failed to unmarshal settings json: %w", err)
	}
	return s, version, nil
}

// SetSettings saves the dynamic configuration to the "config/settings" document.
// It stores the settings as a JSON string for portability.
func (f *FirestoreProvider) SetSettings(ctx context.Context, settings types.Settings, version int) error {
	jsonBytes, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	_, err = f.client.Collection("config").Doc("settings").Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"version": version,
	})
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// ObjectExists reports whether the point document exists.
func (f *FirestoreProvider) ObjectExists(ctx context.Context, id string) (bool, error) {
	ref, err := f.pointDoc(id)
	if err != nil {
		return false, err
	}
	_, err = ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to get object %s: %w", id, err)
	}
	return true, nil
}

// CreateObjectIfAbsent creates the point document. An existing document is
// left as is.
func (f *FirestoreProvider) CreateObjectIfAbsent(ctx context.Context, id string, meta types.PointMeta) error {
	ref, err := f.pointDoc(id)
	if err != nil {
		return err
	}
	metaStr, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, map[string]interface{}{
		"meta": metaStr,
		"kind": string(meta.Kind),
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("failed to create object %s: %w", id, err)
	}
	log.Ctx(ctx).DebugContext(ctx, "created object", slog.String("id", id), slog.String("kind", string(meta.Kind)))
	return nil
}

// ReadState returns the latest state stored on the point document.
func (f *FirestoreProvider) ReadState(ctx context.Context, id string) (*types.PointState, error) {
	ref, err := f.pointDoc(id)
	if err != nil {
		return nil, err
	}
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get object %s: %w", id, err)
	}
	if _, err := doc.DataAt("state"); err != nil {
		return nil, nil
	}
	stateStr, err := stringField(doc, "state")
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", id, err)
	}
	return decodeState(id, stateStr)
}

// WriteState updates the state of an existing point document.
func (f *FirestoreProvider) WriteState(ctx context.Context, id string, state types.PointState) error {
	ref, err := f.pointDoc(id)
	if err != nil {
		return err
	}
	stateStr, err := encodeState(state)
	if err != nil {
		return err
	}
	_, err = ref.Update(ctx, []firestore.Update{
		{Path: "state", Value: stateStr},
		{Path: "timestamp", Value: state.Timestamp},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("failed to write state %s: object does not exist", id)
		}
		return fmt.Errorf("failed to write state %s: %w", id, err)
	}
	return nil
}

// DeleteObject removes the point document.
func (f *FirestoreProvider) DeleteObject(ctx context.Context, id string) error {
	ref, err := f.pointDoc(id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("failed to delete object %s: %w", id, err)
	}
	return nil
}

// ListPoints uses a document ID range query so only matching documents are
// read.
func (f *FirestoreProvider) ListPoints(ctx context.Context, prefix string) ([]types.Point, error) {
	coll := f.client.Collection(pointsCollection)
	q := coll.OrderBy(firestore.DocumentID, firestore.Asc)
	if prefix != "" {
		q = q.Where(firestore.DocumentID, ">=", coll.Doc(prefix))
		if end := prefixEnd(prefix); end != "" {
			q = q.Where(firestore.DocumentID, "<", coll.Doc(end))
		}
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	var points []types.Point
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating points: %w", err)
		}

		metaStr, err := stringField(doc, "meta")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "point doc missing meta", slog.String("id", doc.Ref.ID), slog.Any("err", err))
			return nil, fmt.Errorf("point document %s: %w", doc.Ref.ID, err)
		}
		var stateStr string
		if _, err := doc.DataAt("state"); err == nil {
			stateStr, err = stringField(doc, "state")
			if err != nil {
				return nil, fmt.Errorf("point document %s: %w", doc.Ref.ID, err)
			}
		}
		p, err := decodePoint(doc.Ref.ID, metaStr, stateStr)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

func stringField(doc *firestore.DocumentSnapshot, field string) (string, error) {
	val, err := doc.DataAt(field)
	if err != nil {
		return "", fmt.Errorf("missing '%s' field: %w", field, err)
	}
	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("'%s' field is not a string", field)
	}
	return str, nil
}
