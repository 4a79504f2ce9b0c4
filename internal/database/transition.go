package database

import (
	"errors"
	"fmt"
	"strings"

	"holylandtour/internal/util"

	"github.com/google/uuid"
)

var errTransitionTarget = errors.New("database: transition needs an id or a payment reference")

// TransitionParams describes a conditional payment status change. The row is
// selected by ID or PaymentRef and only changes when its current status is
// one of From.
type TransitionParams struct {
	ID            util.Optional[uuid.UUID]
	PaymentRef    util.Optional[string]
	From          []PaymentStatus
	To            PaymentStatus
	NewPaymentRef util.Optional[string]
}

// buildTransition returns the conditional UPDATE and the lookup used to tell
// "not found" from "not in a transitionable state".
func buildTransition(table, columns string, p TransitionParams) (update string, updateArgs []any, lookup string, lookupArgs []any, err error) {
	if !p.ID.IsSet && !p.PaymentRef.IsSet {
		return "", nil, "", nil, errTransitionTarget
	}

	from := make([]string, 0, len(p.From))
	for _, s := range p.From {
		from = append(from, string(s))
	}

	var where strings.Builder
	var whereArgs []any
	argNum := 1
	if p.ID.IsSet {
		where.WriteString(fmt.Sprintf(" AND id = $%d", argNum))
		whereArgs = append(whereArgs, p.ID.Val)
		argNum++
	}
	if p.PaymentRef.IsSet {
		where.WriteString(fmt.Sprintf(" AND stripe_payment_id = $%d", argNum))
		whereArgs = append(whereArgs, p.PaymentRef.Val)
		argNum++
	}

	lookup = fmt.Sprintf(`SELECT %s FROM %s WHERE 1=1%s LIMIT 1`, columns, table, where.String())
	lookupArgs = whereArgs

	var set strings.Builder
	updateArgs = append(updateArgs, whereArgs...)
	set.WriteString(fmt.Sprintf("payment_status = $%d, updated_at = now()", argNum))
	updateArgs = append(updateArgs, string(p.To))
	argNum++
	if p.NewPaymentRef.IsSet {
		set.WriteString(fmt.Sprintf(", stripe_payment_id = $%d", argNum))
		updateArgs = append(updateArgs, p.NewPaymentRef.Val)
		argNum++
	}
	updateArgs = append(updateArgs, from)

	update = fmt.Sprintf(`UPDATE %s SET %s WHERE payment_status = ANY($%d)%s RETURNING %s`,
		table, set.String(), argNum, where.String(), columns)

	return update, updateArgs, lookup, lookupArgs, nil
}
