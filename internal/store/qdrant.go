package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"

	"github.com/katakuxiko/kbagent/internal/model"
)

// QdrantStore gives every session its own Qdrant collection, created on the
// first insert and dropped on reset.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	prefix      string
	dim         int
}

func NewQdrantStore(addr, prefix string, dim int) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("could not connect to Qdrant: %w", err)
	}
	return &QdrantStore{
		conn:        conn,
		points:      qdrant.NewPointsClient(conn),
		collections: qdrant.NewCollectionsClient(conn),
		prefix:      prefix,
		dim:         dim,
	}, nil
}

func (s *QdrantStore) ForSession(sessionID string) *QdrantIndex {
	return &QdrantIndex{store: s, name: collectionName(s.prefix, sessionID)}
}

func (s *QdrantStore) Close() error { return s.conn.Close() }

func collectionName(prefix, sessionID string) string {
	return prefix + "_" + strings.ReplaceAll(sessionID, "-", "")
}

type QdrantIndex struct {
	store *QdrantStore
	name  string

	mu      sync.Mutex
	created bool
	seq     uint64 // next point id; ids follow insertion order
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	if q.created {
		return nil
	}
	exists, err := q.store.collections.CollectionExists(ctx, &qdrant.CollectionExistsRequest{CollectionName: q.name})
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", q.name, err)
	}
	// left behind when dropping an expired session under this id failed
	if exists.GetResult().GetExists() {
		if _, err := q.store.collections.Delete(ctx, &qdrant.DeleteCollection{CollectionName: q.name}); err != nil {
			return fmt.Errorf("failed to drop stale collection %s: %w", q.name, err)
		}
	}
	_, err = q.store.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.store.dim),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", q.name, err)
	}
	q.created = true
	return nil
}

func (q *QdrantIndex) Insert(ctx context.Context, chunks ...model.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if _, err := checkDims(q.store.dim, chunks); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.ensureCollection(ctx); err != nil {
		return err
	}
	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = toPoint(q.seq+uint64(i), c)
	}
	_, err := q.store.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.name,
		Points:         points,
		Wait:           proto.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points to Qdrant: %w", err)
	}
	q.seq += uint64(len(chunks))
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, vec []float32, k int) ([]model.SearchResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if k <= 0 || q.seq == 0 {
		return nil, nil
	}
	if len(vec) != q.store.dim {
		return nil, ErrDimensionMismatch
	}
	resp, err := q.store.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.name,
		Vector:         vec,
		Limit:          uint64(k),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search points in Qdrant: %w", err)
	}
	return fromHits(resp.GetResult()), nil
}

func (q *QdrantIndex) Reset(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.created {
		if _, err := q.store.collections.Delete(ctx, &qdrant.DeleteCollection{CollectionName: q.name}); err != nil {
			return fmt.Errorf("failed to drop collection %s: %w", q.name, err)
		}
	}
	q.created = false
	q.seq = 0
	return nil
}

func (q *QdrantIndex) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(q.seq), nil
}

func toPoint(id uint64, c model.EmbeddedChunk) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      &qdrant.PointId{PointIdOptions: &qdrant.PointId_Num{Num: id}},
		Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: c.Vector}}},
		Payload: map[string]*qdrant.Value{
			"source":   {Kind: &qdrant.Value_StringValue{StringValue: c.Chunk.Source}},
			"position": {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(c.Chunk.Position)}},
			"text":     {Kind: &qdrant.Value_StringValue{StringValue: c.Chunk.Text}},
		},
	}
}

// fromHits converts search hits and re-sorts them by (distance, point id)
// because Qdrant does not promise an order among equal scores. With the
// Euclid metric the score is the distance itself.
func fromHits(hits []*qdrant.ScoredPoint) []model.SearchResult {
	type ranked struct {
		id uint64
		r  model.SearchResult
	}
	rs := make([]ranked, 0, len(hits))
	for _, h := range hits {
		p := h.GetPayload()
		r := model.SearchResult{Distance: h.GetScore()}
		r.Chunk = model.Chunk{
			Source:   p["source"].GetStringValue(),
			Position: int(p["position"].GetIntegerValue()),
			Text:     p["text"].GetStringValue(),
		}
		rs = append(rs, ranked{id: h.GetId().GetNum(), r: r})
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].r.Distance != rs[j].r.Distance {
			return rs[i].r.Distance < rs[j].r.Distance
		}
		return rs[i].id < rs[j].id
	})
	out := make([]model.SearchResult, len(rs))
	for i, x := range rs {
		out[i] = x.r
	}
	return out
}
