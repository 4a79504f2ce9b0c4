package database

import (
	"context"
	"fmt"
)

type StatusCount struct {
	Count       int64
	AmountCents int64
}

type DashboardStats struct {
	Registrations map[PaymentStatus]StatusCount
	HotelBookings map[PaymentStatus]StatusCount
	RoomsBooked   map[string]int64
}

func (db *Database) GetDashboardStats(ctx context.Context) (DashboardStats, error) {
	stats := DashboardStats{
		Registrations: make(map[PaymentStatus]StatusCount),
		HotelBookings: make(map[PaymentStatus]StatusCount),
		RoomsBooked:   make(map[string]int64),
	}

	if err := db.countByStatus(ctx, `SELECT payment_status, count(*), COALESCE(sum(registration_fee_cents), 0)::bigint
		FROM registrations GROUP BY payment_status`, stats.Registrations); err != nil {
		return stats, fmt.Errorf("database: failed to count registrations: %w", err)
	}
	if err := db.countByStatus(ctx, `SELECT payment_status, count(*), COALESCE(sum(total_amount_cents), 0)::bigint
		FROM hotel_bookings GROUP BY payment_status`, stats.HotelBookings); err != nil {
		return stats, fmt.Errorf("database: failed to count hotel bookings: %w", err)
	}

	rows, err := db.Pool.Query(ctx, `SELECT room_type_id, count(*) FROM hotel_bookings WHERE payment_status = 'paid' GROUP BY room_type_id`)
	if err != nil {
		return stats, fmt.Errorf("database: failed to count booked rooms: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var roomType string
		var count int64
		if err := rows.Scan(&roomType, &count); err != nil {
			return stats, fmt.Errorf("database: failed to scan booked rooms: %w", err)
		}
		stats.RoomsBooked[roomType] = count
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("database: failed to iterate over booked rooms: %w", err)
	}

	return stats, nil
}

func (db *Database) countByStatus(ctx context.Context, query string, into map[PaymentStatus]StatusCount) error {
	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var status PaymentStatus
		var sc StatusCount
		if err := rows.Scan(&status, &sc.Count, &sc.AmountCents); err != nil {
			return err
		}
		into[status] = sc
	}
	return rows.Err()
}
