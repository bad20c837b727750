package core

// DBOrdering is a single ORDER BY term. Repositories must resolve Field
// against their own column whitelist before splicing it into a query.
type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
