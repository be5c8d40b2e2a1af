package repository

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/mweber/stocklens/internal/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// upsertBatchSize caps how many points go into one upsert request.
const upsertBatchSize = 256

// QdrantConnectionConfig holds configuration for the Qdrant connection.
type QdrantConnectionConfig struct {
	Host   string
	Port   int
	APIKey string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS bool   // Explicitly enable TLS without API Key
}

// apiKeyInterceptor creates a unary interceptor that adds the API key to metadata.
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantRepository handles vector operations against Qdrant. One repository
// serves every collection; collection names are passed per call because each
// ingestion run owns its own collection.
type QdrantRepository struct {
	conn          *grpc.ClientConn
	pointsClient  pb.PointsClient
	collectClient pb.CollectionsClient
}

// NewQdrantRepository creates a new QdrantRepository.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key).
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption

	useTLS := cfg.UseTLS || cfg.APIKey != ""
	if useTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantRepository{
		conn:          conn,
		pointsClient:  pb.NewPointsClient(conn),
		collectClient: pb.NewCollectionsClient(conn),
	}, nil
}

// Close closes the gRPC connection.
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist. An existing
// collection with a different vector size is an error: mixing embedding
// models within one collection is a hard failure at the index layer.
func (r *QdrantRepository) EnsureCollection(ctx context.Context, collection string, dim int) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: collection,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok {
			if size != uint64(dim) {
				return fmt.Errorf("collection %s has vector size %d, expected %d", collection, size, dim)
			}
		}
		return nil
	}

	return r.createCollection(ctx, collection, dim)
}

// RecreateCollection drops the collection if present and creates it fresh.
// Re-ingesting a dataset always goes through here so stale points from a
// longer previous upload cannot survive.
func (r *QdrantRepository) RecreateCollection(ctx context.Context, collection string, dim int) error {
	if err := r.DeleteCollection(ctx, collection); err != nil {
		return err
	}
	return r.createCollection(ctx, collection, dim)
}

// DeleteCollection drops a collection. Dropping a collection that does not
// exist is not an error.
func (r *QdrantRepository) DeleteCollection(ctx context.Context, collection string) error {
	_, err := r.collectClient.Delete(ctx, &pb.DeleteCollection{
		CollectionName: collection,
	})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

func (r *QdrantRepository) createCollection(ctx context.Context, collection string, dim int) error {
	_, err := r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dim),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		// A concurrent first-upload may have won the create race.
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}

	config := info.GetConfig()
	if config == nil {
		return 0, false
	}

	params := config.GetParams()
	if params == nil {
		return 0, false
	}

	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}

	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}

	return 0, false
}

// UpsertPosts upserts one point per vector with id = positional index and a
// payload copied from the matching post. Vectors and posts must be aligned.
func (r *QdrantRepository) UpsertPosts(ctx context.Context, collection string, vectors [][]float32, posts []domain.Post) error {
	if len(vectors) != len(posts) {
		return fmt.Errorf("vector/record count mismatch: %d vectors, %d posts", len(vectors), len(posts))
	}

	for start := 0; start < len(vectors); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(vectors) {
			end = len(vectors)
		}

		points := make([]*pb.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, &pb.PointStruct{
				Id: &pb.PointId{
					PointIdOptions: &pb.PointId_Num{Num: uint64(i)},
				},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{
						Vector: &pb.Vector{Data: vectors[i]},
					},
				},
				Payload: buildPayload(&posts[i]),
			})
		}

		_, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: collection,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert points: %w", err)
		}
	}

	return nil
}

func buildPayload(p *domain.Post) map[string]*pb.Value {
	return map[string]*pb.Value{
		"title":    {Kind: &pb.Value_StringValue{StringValue: p.Title}},
		"selftext": {Kind: &pb.Value_StringValue{StringValue: p.Body}},
		"score":    {Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.Score)}},
		"source":   {Kind: &pb.Value_StringValue{StringValue: domain.PayloadSource}},
	}
}

func parsePayload(payload map[string]*pb.Value) domain.PostPayload {
	p := domain.PostPayload{}
	if v, ok := payload["title"]; ok {
		p.Title = v.GetStringValue()
	}
	if v, ok := payload["selftext"]; ok {
		p.Body = v.GetStringValue()
	}
	if v, ok := payload["score"]; ok {
		p.Score = int(v.GetIntegerValue())
	}
	if v, ok := payload["source"]; ok {
		p.Source = v.GetStringValue()
	}
	return p
}

// SearchPayloads returns the payloads of the k nearest points, nearest
// first. No minimum-score threshold is applied. An unknown collection maps
// to domain.ErrNotFound.
func (r *QdrantRepository) SearchPayloads(ctx context.Context, collection string, vector []float32, k int) ([]domain.PostPayload, error) {
	resp, err := r.pointsClient.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("collection %s: %w", collection, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	payloads := make([]domain.PostPayload, len(resp.Result))
	for i, scored := range resp.Result {
		payloads[i] = parsePayload(scored.Payload)
	}
	return payloads, nil
}

// ListCollections returns the names of all collections in the index.
func (r *QdrantRepository) ListCollections(ctx context.Context) ([]string, error) {
	resp, err := r.collectClient.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	names := make([]string, 0, len(resp.Collections))
	for _, c := range resp.Collections {
		names = append(names, c.GetName())
	}
	return names, nil
}
