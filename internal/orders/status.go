package orders

type Status string

const (
	StatusPlaced        Status = "placed"
	StatusConfirmed     Status = "confirmed"
	StatusInPreparation Status = "in_preparation"
	StatusReady         Status = "ready"
	StatusDelivered     Status = "delivered"
	StatusCancelled     Status = "cancelled"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusPlaced, StatusConfirmed, StatusInPreparation,
		StatusReady, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

var validNext = map[Status]map[Status]bool{
	StatusPlaced:        {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:     {StatusInPreparation: true, StatusCancelled: true},
	StatusInPreparation: {StatusReady: true},
	StatusReady:         {StatusDelivered: true},
	StatusDelivered:     {},
	StatusCancelled:     {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
