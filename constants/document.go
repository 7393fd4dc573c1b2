package constants

// DocumentTypes are the suggested values for the document_type field. The
// set is open: the transformer may report a type outside this list and it
// is stored as-is. The list only steers the extraction prompt.
var DocumentTypes = []string{
	"Анализ крови",
	"Анализ мочи",
	"Копрограмма",
	"Бактериология",
	"Аллергены",
	"Онкомаркеры",
}
