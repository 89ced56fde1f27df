package marketplace

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/store"
)

// Routes tracks broker collection runs and their booked capacity.
type Routes struct {
	store store.Store
	now   func() time.Time
}

func NewRoutes(st store.Store) *Routes {
	return &Routes{store: st, now: time.Now}
}

// RouteView is a route with its capacity accounting.
type RouteView struct {
	domain.Route
	Booked    decimal.Decimal `json:"booked_capacity"`
	Available decimal.Decimal `json:"available_capacity"`
}

type RouteDetail struct {
	RouteView
	Bids []domain.Bid `json:"bids"`
}

type RouteInput struct {
	Name        string
	Description string
	Origin      string
	Destination string
	Date        time.Time
	Capacity    int
	PricePerKg  decimal.Decimal
}

func (in *RouteInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Origin = strings.TrimSpace(in.Origin)
	in.Destination = strings.TrimSpace(in.Destination)
	in.Description = strings.TrimSpace(in.Description)
	switch {
	case in.Name == "":
		return domain.Validation("name is required")
	case in.Origin == "" || in.Destination == "":
		return domain.Validation("origin and destination are required")
	case in.Date.IsZero():
		return domain.Validation("date is required")
	case in.Capacity <= 0:
		return domain.Validation("capacity must be greater than zero")
	case in.PricePerKg.IsNegative():
		return domain.Validation("price_per_kg cannot be negative")
	}
	return nil
}

func (s *Routes) view(ctx context.Context, tx store.Tx, r *domain.Route) (RouteView, error) {
	booked, err := tx.BookedCapacity(ctx, r.ID)
	if err != nil {
		return RouteView{}, err
	}
	return RouteView{
		Route:     *r,
		Booked:    booked,
		Available: decimal.NewFromInt(int64(r.Capacity)).Sub(booked),
	}, nil
}

func (s *Routes) Create(ctx context.Context, brokerID string, in RouteInput) (*domain.Route, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	r := &domain.Route{
		ID:          uuid.New().String(),
		BrokerID:    brokerID,
		Name:        in.Name,
		Description: in.Description,
		Origin:      in.Origin,
		Destination: in.Destination,
		Date:        in.Date,
		Capacity:    in.Capacity,
		PricePerKg:  in.PricePerKg,
		Status:      domain.RouteActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateRoute(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "route created", "route_id", r.ID, "broker_id", brokerID)
	return r, nil
}

type RoutePatch struct {
	Name        *string
	Description *string
	Origin      *string
	Destination *string
	Date        *time.Time
	Capacity    *int
	PricePerKg  *decimal.Decimal
	Status      *string
}

// Update edits a route. Capacity cannot drop below what is already booked.
func (s *Routes) Update(ctx context.Context, brokerID, routeID string, p RoutePatch) (*RouteView, error) {
	var out RouteView
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		r, err := s.owned(ctx, tx, brokerID, routeID, true)
		if err != nil {
			return err
		}
		in := RouteInput{
			Name: r.Name, Description: r.Description, Origin: r.Origin, Destination: r.Destination,
			Date: r.Date, Capacity: r.Capacity, PricePerKg: r.PricePerKg,
		}
		if p.Name != nil {
			in.Name = *p.Name
		}
		if p.Description != nil {
			in.Description = *p.Description
		}
		if p.Origin != nil {
			in.Origin = *p.Origin
		}
		if p.Destination != nil {
			in.Destination = *p.Destination
		}
		if p.Date != nil {
			in.Date = *p.Date
		}
		if p.Capacity != nil {
			in.Capacity = *p.Capacity
		}
		if p.PricePerKg != nil {
			in.PricePerKg = *p.PricePerKg
		}
		if err := in.validate(); err != nil {
			return err
		}
		if p.Status != nil {
			switch *p.Status {
			case domain.RouteActive, domain.RouteCompleted, domain.RouteCancelled:
				r.Status = *p.Status
			default:
				return domain.Validation("status must be active, completed or cancelled")
			}
		}

		booked, err := tx.BookedCapacity(ctx, r.ID)
		if err != nil {
			return err
		}
		if decimal.NewFromInt(int64(in.Capacity)).LessThan(booked) {
			return domain.Validation("capacity cannot be reduced below the booked %s kg", booked.String())
		}

		r.Name, r.Description, r.Origin, r.Destination = in.Name, in.Description, in.Origin, in.Destination
		r.Date, r.Capacity, r.PricePerKg = in.Date, in.Capacity, in.PricePerKg
		r.UpdatedAt = s.now().UTC()
		if err := tx.UpdateRoute(ctx, r); err != nil {
			return err
		}
		out, err = s.view(ctx, tx, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a route nothing has been booked against.
func (s *Routes) Delete(ctx context.Context, brokerID, routeID string) error {
	return s.store.InTx(ctx, func(tx store.Tx) error {
		r, err := s.owned(ctx, tx, brokerID, routeID, true)
		if err != nil {
			return err
		}
		bids, err := tx.ListBids(ctx, store.BidFilter{RouteID: r.ID})
		if err != nil {
			return err
		}
		if len(bids) > 0 {
			return domain.InvalidState("route has %d linked bids and cannot be deleted", len(bids))
		}
		return tx.DeleteRoute(ctx, r.ID)
	})
}

func (s *Routes) owned(ctx context.Context, tx store.Tx, brokerID, routeID string, lock bool) (*domain.Route, error) {
	r, err := tx.GetRoute(ctx, routeID, lock)
	if err != nil {
		return nil, err
	}
	if r.BrokerID != brokerID {
		return nil, domain.Unauthorized("route belongs to another broker")
	}
	return r, nil
}

// List returns the broker's routes with capacity accounting.
func (s *Routes) List(ctx context.Context, brokerID string, f store.RouteFilter) ([]RouteView, error) {
	f.BrokerID = brokerID
	var out []RouteView
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		routes, err := tx.ListRoutes(ctx, f)
		if err != nil {
			return err
		}
		out = make([]RouteView, 0, len(routes))
		for i := range routes {
			v, err := s.view(ctx, tx, &routes[i])
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

// Detail returns one route with the bids linked to it.
func (s *Routes) Detail(ctx context.Context, brokerID, routeID string) (*RouteDetail, error) {
	var out RouteDetail
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		r, err := s.owned(ctx, tx, brokerID, routeID, false)
		if err != nil {
			return err
		}
		if out.RouteView, err = s.view(ctx, tx, r); err != nil {
			return err
		}
		out.Bids, err = tx.ListBids(ctx, store.BidFilter{RouteID: r.ID})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// WriteCSV exports routes in the column order brokers download.
func WriteCSV(w io.Writer, routes []RouteView) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ID", "Name", "Origin", "Destination", "Date", "Capacity", "Available", "Price/kg", "Status"}); err != nil {
		return err
	}
	for _, r := range routes {
		if err := cw.Write([]string{
			r.ID, r.Name, r.Origin, r.Destination,
			r.Date.Format(time.DateOnly),
			strconv.Itoa(r.Capacity),
			r.Available.String(),
			r.PricePerKg.StringFixed(2),
			r.Status,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
