// Package payment validates card details and marks orders as paid. No
// money moves; acceptance is a status transition.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go-storefront/apps/order"
	"go-storefront/apps/order/model"
	"go-storefront/pkg/mq"
	"go-storefront/pkg/response"
	"go-storefront/pkg/tracer"
	"go-storefront/pkg/validate"
)

const EventPaid = "order.paid"

var ErrAlreadyPaid = errors.New("order is already paid")

// Card is the payment form.
type Card struct {
	Number string `json:"number" validate:"required,max=16,number"`
	Name   string `json:"name" validate:"required,max=128"`
	Month  string `json:"month" validate:"required,max=2"`
	Year   string `json:"year" validate:"required,max=4"`
	Code   string `json:"code" validate:"required,len=3,number"`
}

// Validate returns field errors, or nil when the card is acceptable.
// Month and year must name a real calendar month.
func (c Card) Validate() response.FieldErrors {
	if fields := validate.Struct(c); fields != nil {
		return fields
	}
	year, yerr := strconv.Atoi(c.Year)
	month, merr := strconv.Atoi(c.Month)
	if yerr != nil || merr != nil || year < 1 || year > 9999 || month < 1 || month > 12 {
		return response.FieldErrors{response.NonFieldErrors: {"Not a valid date."}}
	}
	return nil
}

type PaidEvent struct {
	OrderID uint      `json:"orderId"`
	TxID    string    `json:"txId"`
	PaidAt  time.Time `json:"paidAt"`
}

type Service struct {
	db     *gorm.DB
	events mq.Publisher
}

func NewService(db *gorm.DB, events mq.Publisher) *Service {
	if events == nil {
		events = mq.LogPublisher{}
	}
	return &Service{db: db, events: events}
}

// Pay accepts payment for one of the caller's orders: processing → accepted.
func (s *Service) Pay(ctx context.Context, profileID, orderID uint, card Card) (err error) {
	ctx, span := tracer.Start(ctx, "payment.Pay")
	defer func() { tracer.End(span, err) }()

	if fields := card.Validate(); fields != nil {
		return &order.ValidationError{Fields: fields}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Order{}).
			Where("id = ? AND profile_id = ? AND status = ?", orderID, profileID, model.StatusProcessing).
			Update("status", model.StatusAccepted)
		if res.Error != nil {
			return fmt.Errorf("accept order %d: %w", orderID, res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}

		var o model.Order
		if err := tx.Select("id", "status").Where("id = ? AND profile_id = ?", orderID, profileID).First(&o).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return order.ErrNotFound
			}
			return fmt.Errorf("load order %d: %w", orderID, err)
		}
		return ErrAlreadyPaid
	})
	if err != nil {
		return err
	}

	// 模拟的流水号
	event := PaidEvent{OrderID: orderID, TxID: fmt.Sprintf("tx_%d", time.Now().UnixNano()), PaidAt: time.Now()}
	if err := s.events.Publish(ctx, EventPaid, event); err != nil {
		log.Warn().Err(err).Uint("order_id", orderID).Msg("publish order.paid")
	}
	log.Info().Uint("order_id", orderID).Str("tx_id", event.TxID).Msg("order paid")
	return nil
}
