package ingestion

import (
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/mikana/dashboard/internal/models"
)

// Accepted media types.
const (
	TypeCSV  = "text/csv"
	TypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// AcceptedTypes is the media type set offered to the file picker.
var AcceptedTypes = []string{TypeCSV, TypeXLSX}

// Requirements returns the static descriptor of a module. The orders
// descriptor is completed with the last accepted file by the controller.
func Requirements(module models.UploadModule, now time.Time) models.UploadModuleRequirements {
	r := models.UploadModuleRequirements{Module: module}
	switch module {
	case models.ModuleOrders:
		r.RequiredFilenames = []string{"Fichiers logistiques mensuels"}
		r.Notes = "Les fichiers doivent être au format Excel."
	case models.ModuleDeliveries:
		r.RequiredFilenames = []string{"Planif livraisons.xlsx"}
		r.Notes = "Le fichier doit être à jour."
	case models.ModuleHR:
		r.RequiredFilenames = []string{fmt.Sprintf("PRESENCE_%d.xlsx", now.Year())}
		r.Notes = "Le fichier doit contenir les présences de l'année en cours."
	}
	return r
}

// fileType resolves the media type of f. The declared type wins unless it is
// missing or generic, in which case the extension decides.
func fileType(f models.FileRef) string {
	if mt, _, err := mime.ParseMediaType(f.ContentType); err == nil {
		switch mt {
		case "", "application/octet-stream", "binary/octet-stream":
		default:
			return mt
		}
	}
	switch strings.ToLower(path.Ext(f.Name)) {
	case ".csv":
		return TypeCSV
	case ".xlsx":
		return TypeXLSX
	}
	return ""
}

// checkFile returns the French reason f is refused for module, or "".
func checkFile(module models.UploadModule, f models.FileRef) string {
	if f.Name == "" {
		return "Nom de fichier manquant."
	}
	if f.Size == 0 && len(f.Content) == 0 {
		return "Le fichier est vide."
	}
	ft := fileType(f)
	if ft != TypeCSV && ft != TypeXLSX {
		return "Format non pris en charge : seuls les fichiers CSV et Excel (.xlsx) sont acceptés."
	}
	switch module {
	case models.ModuleDeliveries:
		if ft != TypeXLSX {
			return "Le module livraisons n'accepte que des fichiers Excel (.xlsx)."
		}
	case models.ModuleHR:
		if ft != TypeXLSX {
			return "Le module RH n'accepte que des fichiers Excel (.xlsx)."
		}
		if !strings.HasPrefix(path.Base(f.Name), "PRESENCE_") {
			return "Le fichier RH doit commencer par PRESENCE_."
		}
	}
	return ""
}
