package models

// ActiveFilter задает область поиска учетной записи по признаку активности.
type ActiveFilter int

const (
	// OnlyActive поиск только среди активированных учетных записей.
	OnlyActive ActiveFilter = iota
	// OnlyInactive поиск только среди неактивированных учетных записей.
	OnlyInactive
	// Either поиск без учета активности; при совпадении имени у активной
	// и неактивной записи приоритет имеет активная.
	Either
)
