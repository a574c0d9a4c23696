package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/endpointmonitor/internal/domain"
	"github.com/hamed0406/endpointmonitor/internal/probe"
	"github.com/hamed0406/endpointmonitor/internal/repo"
)

// DeleteResult is returned by DeleteEndpoint. Deleting an unknown id is not an error.
type DeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// Service is the record lifecycle plus single checks. Every read goes
// through EndpointRecord.View.
type Service struct {
	store repo.RecordStore
	coord *Coordinator
	dns   *probe.DNSDiagnoser
	log   *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewService(store repo.RecordStore, coord *Coordinator, dns *probe.DNSDiagnoser, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if dns == nil {
		dns = probe.NewDNSDiagnoser()
	}
	return &Service{
		store: store,
		coord: coord,
		dns:   dns,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (s *Service) ListEndpoints(ctx context.Context) ([]domain.EndpointView, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, storeErr("list", err)
	}
	out := make([]domain.EndpointView, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.View())
	}
	return out, nil
}

func (s *Service) CreateEndpoint(ctx context.Context, in domain.EndpointInput) (domain.EndpointView, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return domain.EndpointView{}, err
	}
	rec := domain.NewRecord(s.newID(), in, s.now())
	if err := s.store.Insert(ctx, rec); err != nil {
		return domain.EndpointView{}, storeErr("insert", err)
	}
	s.log.Info("endpoint_created",
		zap.String("endpoint_id", rec.ID),
		zap.String("url", rec.URL),
		zap.String("method", rec.Method),
	)
	return rec.View(), nil
}

func (s *Service) GetEndpoint(ctx context.Context, id string) (domain.EndpointView, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.EndpointView{}, storeErr("get", err)
	}
	return rec.View(), nil
}

// UpdateEndpoint overwrites the configuration. History is kept and no check is triggered.
func (s *Service) UpdateEndpoint(ctx context.Context, id string, in domain.EndpointInput) (domain.EndpointView, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return domain.EndpointView{}, err
	}
	var updated domain.EndpointRecord
	err := s.store.Mutate(ctx, id, func(r *domain.EndpointRecord) error {
		r.Apply(in)
		updated = r.Clone()
		return nil
	})
	if err != nil {
		return domain.EndpointView{}, storeErr("update", err)
	}
	s.log.Info("endpoint_updated", zap.String("endpoint_id", id), zap.String("url", updated.URL))
	return updated.View(), nil
}

func (s *Service) DeleteEndpoint(ctx context.Context, id string) (DeleteResult, error) {
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return DeleteResult{ID: id}, storeErr("delete", err)
	}
	if ok {
		s.log.Info("endpoint_deleted", zap.String("endpoint_id", id))
	}
	return DeleteResult{ID: id, Deleted: ok}, nil
}

// CheckEndpoint runs one check synchronously. See Coordinator.RunCheck.
func (s *Service) CheckEndpoint(ctx context.Context, id string) (Outcome, error) {
	return s.coord.RunCheck(ctx, id)
}

// DiagnoseDNS resolves the host of the endpoint's URL.
func (s *Service) DiagnoseDNS(ctx context.Context, id string) (probe.DNSStatus, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return probe.DNSStatus{}, storeErr("get", err)
	}
	return s.dns.DiagnoseURL(ctx, rec.URL), nil
}

func storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrNotFound
	}
	return &domain.PersistenceError{Op: op, Err: err}
}
