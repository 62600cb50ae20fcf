package forecastapi

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mikana/dashboard/internal/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var fieldLabels = map[string]string{
	"DateType":  "type de date",
	"StartDate": "date de début",
	"EndDate":   "date de fin",
}

// ValidatePredictionRequest checks the order-prediction form before any call
// is made. enabled lists the factor tags the operator may select.
func ValidatePredictionRequest(req models.PredictionRequest, enabled []string) error {
	const op = "predict"
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return ValidationError(op, fieldMessage(verrs[0]))
		}
		return ValidationError(op, err.Error())
	}

	if req.DateType == models.DatePeriod {
		if req.EndDate == "" {
			return ValidationError(op, "La date de fin est requise pour une période.")
		}
		start, _ := time.Parse(models.DateLayout, req.StartDate)
		end, _ := time.Parse(models.DateLayout, req.EndDate)
		if end.Before(start) {
			return ValidationError(op, "La date de fin doit être postérieure ou égale à la date de début.")
		}
	}

	for _, f := range req.Factors {
		if !slices.Contains(enabled, f) {
			return ValidationError(op, fmt.Sprintf("Facteur non disponible : %s", f))
		}
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Le champ %s est requis.", label)
	case "datetime":
		return fmt.Sprintf("Le champ %s doit être une date AAAA-MM-JJ.", label)
	}
	return fmt.Sprintf("Valeur invalide pour %s.", label)
}
