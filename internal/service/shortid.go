package service

import (
	"crypto/rand"
	"math/big"
)

// Алфавит коротких алиасов: строчные буквы, цифры и немного пунктуации
const shortIDCharset = "abcdefghijklmnopqrstuvwxyz0123456789-_"

// Слова, которые нельзя использовать как алиас: они совпадают с путями
// самого сервиса.
var reservedAliases = map[string]struct{}{
	"api":     {},
	"add":     {},
	"edit":    {},
	"delete":  {},
	"login":   {},
	"logout":  {},
	"admin":   {},
	"stats":   {},
	"qr":      {},
	"roles":   {},
	"orgs":    {},
	"health":  {},
	"docs":    {},
	"faq":     {},
	"unauthorized": {},
}

// IsReservedAlias сообщает, конфликтует ли имя со служебным маршрутом.
func IsReservedAlias(name string) bool {
	_, ok := reservedAliases[name]
	return ok
}

// ShortIDGenerator выдаёт случайные алиасы фиксированной длины.
// Коллизии разрешаются повторной попыткой вставки на стороне вызывающего;
// генератор лишь гарантирует, что кандидат не зарезервирован.
type ShortIDGenerator struct {
	length int
}

func NewShortIDGenerator(length int) *ShortIDGenerator {
	return &ShortIDGenerator{length: length}
}

func (g *ShortIDGenerator) Length() int {
	return g.length
}

// Generate возвращает случайный алиас. Кандидаты, совпадающие с
// зарезервированным словом, перегенерируются.
func (g *ShortIDGenerator) Generate() (string, error) {
	for {
		candidate, err := g.random()
		if err != nil {
			return "", err
		}
		if !IsReservedAlias(candidate) {
			return candidate, nil
		}
	}
}

func (g *ShortIDGenerator) random() (string, error) {
	result := make([]byte, g.length)
	for i := 0; i < g.length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(shortIDCharset))))
		if err != nil {
			return "", err
		}
		result[i] = shortIDCharset[num.Int64()]
	}
	return string(result), nil
}
