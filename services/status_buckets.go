package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kendall-kelly/marketplace-client/models"
)

// OrdersTab is the tab selected on the orders list screen
type OrdersTab int

const (
	OrdersTabPending OrdersTab = iota
	OrdersTabAccepted
	OrdersTabInProcess
)

func (t OrdersTab) String() string {
	switch t {
	case OrdersTabPending:
		return "Pending"
	case OrdersTabAccepted:
		return "Accepted"
	case OrdersTabInProcess:
		return "In Process"
	default:
		return "OrdersTab(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseOrdersTab parses the tab index sent by the orders screen
func ParseOrdersTab(s string) (OrdersTab, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < int(OrdersTabPending) || n > int(OrdersTabInProcess) {
		return 0, fmt.Errorf("tab must be 0, 1 or 2, got %q", s)
	}
	return OrdersTab(n), nil
}

// Matches reports whether a single sub-order status belongs to the tab.
// The three predicates are disjoint for any one status.
func (t OrdersTab) Matches(status string) bool {
	s := strings.ToLower(status)
	switch t {
	case OrdersTabPending:
		return s == string(models.OrderPendingAcceptance)
	case OrdersTabAccepted:
		return s == string(models.OrderAccepted)
	case OrdersTabInProcess:
		// defined by exclusion so statuses added server-side land here
		return s != string(models.OrderPendingAcceptance) && s != string(models.OrderAccepted)
	default:
		return false
	}
}

// OrderInTab is true when at least one sub-order matches the tab.
// An order without sub-orders is in no tab.
func OrderInTab(tab OrdersTab, order models.Order) bool {
	for _, sub := range order.SubOrders {
		if tab.Matches(sub.Status) {
			return true
		}
	}
	return false
}

// BucketForOrdersTab keeps the orders shown under tab, preserving input order
func BucketForOrdersTab(tab OrdersTab, orders []models.Order) []models.Order {
	out := make([]models.Order, 0, len(orders))
	for _, order := range orders {
		if OrderInTab(tab, order) {
			out = append(out, order)
		}
	}
	return out
}

// ThreadTab is the open/resolved/all selector shared by disputes and tickets
type ThreadTab string

const (
	ThreadTabOpen     ThreadTab = "open"
	ThreadTabResolved ThreadTab = "resolved"
	ThreadTabAll      ThreadTab = "all"
)

// ParseThreadTab maps a tab key; empty and unknown keys mean all
func ParseThreadTab(s string) ThreadTab {
	switch t := ThreadTab(strings.ToLower(strings.TrimSpace(s))); t {
	case ThreadTabOpen, ThreadTabResolved:
		return t
	default:
		return ThreadTabAll
	}
}

// DisputeInTab applies the dispute status rules; unrecognised statuses only show under all
func DisputeInTab(tab ThreadTab, d models.Dispute) bool {
	status := d.StatusKind()
	switch tab {
	case ThreadTabOpen:
		return status == models.DisputeOpen || status == models.DisputePending
	case ThreadTabResolved:
		return status == models.DisputeResolved || status == models.DisputeClosed
	default:
		return true
	}
}

// MatchesDisputeSearch does a case-insensitive substring match on category, details and store name
func MatchesDisputeSearch(d models.Dispute, search string) bool {
	q := strings.ToLower(strings.TrimSpace(search))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(d.Category), q) ||
		strings.Contains(strings.ToLower(d.Details), q) ||
		strings.Contains(strings.ToLower(d.StoreName()), q)
}

// BucketForDisputesTab filters by tab AND search
func BucketForDisputesTab(tab ThreadTab, disputes []models.Dispute, search string) []models.Dispute {
	out := make([]models.Dispute, 0, len(disputes))
	for _, d := range disputes {
		if DisputeInTab(tab, d) && MatchesDisputeSearch(d, search) {
			out = append(out, d)
		}
	}
	return out
}

// TicketInTab mirrors DisputeInTab for support tickets, where in_progress also counts as open
func TicketInTab(tab ThreadTab, t models.SupportTicket) bool {
	status := t.StatusKind()
	switch tab {
	case ThreadTabOpen:
		return status == models.TicketOpen || status == models.TicketPending || status == models.TicketInProgress
	case ThreadTabResolved:
		return status == models.TicketResolved || status == models.TicketClosed
	default:
		return true
	}
}

func BucketForTicketsTab(tab ThreadTab, tickets []models.SupportTicket) []models.SupportTicket {
	out := make([]models.SupportTicket, 0, len(tickets))
	for _, t := range tickets {
		if TicketInTab(tab, t) {
			out = append(out, t)
		}
	}
	return out
}
