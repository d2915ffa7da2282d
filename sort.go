package docstore

type Order int

const (
	Asc Order = iota
	Desc
)

func (o Order) String() string {
	if o == Desc {
		return "desc"
	}
	return "asc"
}

// SortDescriptor orders documents of T by one index.
type SortDescriptor[T any] struct {
	index StorageInformation
	order Order
}

func (s SortDescriptor[T]) Index() StorageInformation {
	return s.index
}

func (s SortDescriptor[T]) Order() Order {
	return s.order
}

func (s SortDescriptor[T]) String() string {
	return s.index.Identifier + " " + s.order.String()
}

func (idx *Index[T, V]) Ascending() SortDescriptor[T] {
	return SortDescriptor[T]{idx.StorageInformation(), Asc}
}

func (idx *Index[T, V]) Descending() SortDescriptor[T] {
	return SortDescriptor[T]{idx.StorageInformation(), Desc}
}
