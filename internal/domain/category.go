package domain

import (
	"strings"

	"github.com/tbourn/go-inventory-bot/internal/search"
)

// DefaultCategory is assigned to products whose category is missing or not
// part of the catalog.
const DefaultCategory = "Otros"

// Categories is the fixed product category catalog.
var Categories = []string{
	"Lácteos",
	"Carnes y embutidos",
	"Panadería",
	"Frutas",
	"Verduras",
	"Bebidas no alcohólicas",
	"Bebidas alcohólicas",
	"Botanas",
	"Dulces",
	"Cereales",
	"Salsas y condimentos",
	"Especias",
	"Enlatados",
	"Pastas",
	"Arroz y granos",
	"Harinas",
	"Aceites",
	"Congelados",
	"Bebés",
	"Higiene personal",
	"Limpieza",
	"Papel y desechables",
	"Cuidado femenino",
	"Mascotas",
	"Farmacia",
	"Café y té",
	"Azúcar y endulzantes",
	"Energéticas",
	"Importados",
	"Festivos",
	DefaultCategory,
}

var categoryByKey = func() map[string]string {
	m := make(map[string]string, len(Categories))
	for _, c := range Categories {
		m[search.Normalize(c)] = c
	}
	return m
}()

// CanonicalCategory maps free text onto the catalog label it names. The
// comparison ignores case and diacritics but is otherwise exact; anything
// that is not a catalog label maps to DefaultCategory.
func CanonicalCategory(s string) string {
	if strings.TrimSpace(s) == "" {
		return DefaultCategory
	}
	if c, ok := categoryByKey[search.Normalize(s)]; ok {
		return c
	}
	return DefaultCategory
}
