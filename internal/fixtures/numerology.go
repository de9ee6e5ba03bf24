package fixtures

import (
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"github.com/mmeshcher/palmastro/internal/model"
)

// NumerologyMethod описывает метод расчёта.
const NumerologyMethod = "Pythagorean reduction with master numbers 11/22/33 preserved"

var letterValues = map[rune]int{
	'A': 1, 'J': 1, 'S': 1,
	'B': 2, 'K': 2, 'T': 2,
	'C': 3, 'L': 3, 'U': 3,
	'D': 4, 'M': 4, 'V': 4,
	'E': 5, 'N': 5, 'W': 5,
	'F': 6, 'O': 6, 'X': 6,
	'G': 7, 'P': 7, 'Y': 7,
	'H': 8, 'Q': 8, 'Z': 8,
	'I': 9, 'R': 9,
}

// NumerologyResult описывает результат нумерологического расчёта.
type NumerologyResult struct {
	LifePath       int    `json:"life_path"`
	LifePathRaw    int    `json:"life_path_raw"`
	Destiny        int    `json:"destiny"`
	DestinyRaw     int    `json:"destiny_raw"`
	Soul           int    `json:"soul"`
	SoulRaw        int    `json:"soul_raw"`
	Personality    int    `json:"personality"`
	PersonalityRaw int    `json:"personality_raw"`
	NormalizedName string `json:"normalized_name"`
	KarmicLessons  []int  `json:"karmic_lessons"`
	Method         string `json:"method"`
}

func isMaster(n int) bool { return n == 11 || n == 22 || n == 33 }

// Reduce сводит число к одной цифре, сохраняя мастер-числа 11, 22 и 33.
func Reduce(n int) int {
	for n > 9 && !isMaster(n) {
		sum := 0
		for ; n > 0; n /= 10 {
			sum += n % 10
		}
		n = sum
	}
	return n
}

// NormalizeName оставляет в имени только латинские буквы в верхнем регистре.
func NormalizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

func isVowel(r rune) bool { return strings.ContainsRune("AEIOUY", r) }

// Numerology рассчитывает числа пути, судьбы, души и личности.
func Numerology(fullName string, birth time.Time) NumerologyResult {
	name := NormalizeName(fullName)

	var all, vowels, consonants int
	present := make(map[int]bool)
	for _, r := range name {
		v := letterValues[r]
		present[v] = true
		all += v
		if isVowel(r) {
			vowels += v
		} else {
			consonants += v
		}
	}

	lifeRaw := 0
	for _, d := range birth.Format("20060102") {
		lifeRaw += int(d - '0')
	}

	lessons := make([]int, 0, 9)
	for n := 1; n <= 9; n++ {
		if !present[n] {
			lessons = append(lessons, n)
		}
	}

	return NumerologyResult{
		LifePath:       Reduce(lifeRaw),
		LifePathRaw:    lifeRaw,
		Destiny:        Reduce(all),
		DestinyRaw:     all,
		Soul:           Reduce(vowels),
		SoulRaw:        vowels,
		Personality:    Reduce(consonants),
		PersonalityRaw: consonants,
		NormalizedName: name,
		KarmicLessons:  lessons,
		Method:         NumerologyMethod,
	}
}

// NumerologyJSON рассчитывает результат по запросу. Некорректная дата заменяется значением по умолчанию.
func NumerologyJSON(req model.NumerologyRequest) json.RawMessage {
	birth, err := time.Parse(time.DateOnly, req.BirthDate)
	if err != nil {
		birth = time.Date(1990, time.August, 1, 0, 0, 0, 0, time.UTC)
	}
	return mustJSON(Numerology(req.FullName, birth))
}
