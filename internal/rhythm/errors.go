package rhythm

import "errors"

// Ошибки конфигурации движка. Все они возникают до начала симуляции:
// начатый прогон уже не может завершиться ошибкой.
var (
	ErrInvalidParameter = errors.New("invalid parameter")
)
