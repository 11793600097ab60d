// Package i18n translates API message codes. French is the default language.
package i18n

import "golang.org/x/text/language"

const (
	FR = "fr"
	EN = "en"
)

var supported = []language.Tag{language.French, language.English}

var matcher = language.NewMatcher(supported)

// DetectLanguage picks fr or en from an Accept-Language header value.
func DetectLanguage(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return FR
	}
	_, idx, _ := matcher.Match(tags...)
	if idx == 1 {
		return EN
	}
	return FR
}

// T returns the message for code in lang, falling back to French, then to the code itself.
func T(lang, code string) string {
	if m, ok := messages[lang]; ok {
		if s, ok := m[code]; ok {
			return s
		}
	}
	if s, ok := messages[FR][code]; ok {
		return s
	}
	return code
}

var messages = map[string]map[string]string{
	FR: {
		"required":               "Requis",
		"invalid_email":          "Adresse email invalide",
		"must_be_positive":       "Doit être positif",
		"must_not_be_negative":   "Ne doit pas être négatif",
		"invalid_tva_rate":       "Taux de TVA invalide",
		"too_short":              "Trop court",
		"too_long":               "Trop long",
		"invalid":                "Valeur invalide",
		"validation_failed":      "Données invalides",
		"invalid_json":           "Corps de requête JSON invalide",
		"missing_fields":         "Email et mot de passe requis",
		"client_name_required":   "Le nom du client est requis",
		"email_exists":           "Cet email est déjà utilisé",
		"invalid_credentials":    "Email ou mot de passe incorrect",
		"unauthorized":           "Authentification requise",
		"invalid_token":          "Token invalide ou expiré",
		"forbidden":              "Accès refusé",
		"user_not_found":         "Utilisateur non trouvé",
		"quote_not_found":        "Devis non trouvé",
		"quote_number_exists":    "Ce numéro de devis existe déjà",
		"unknown_plan":           "Ce prix ne correspond à aucune offre",
		"not_found":              "Ressource introuvable",
		"quota_exceeded":         "Crédits insuffisants. Passez à un abonnement pour continuer.",
		"invalid_price_id":       "Identifiant de prix invalide",
		"invalid_status":         "Statut de devis invalide",
		"payment_provider_error": "Erreur du prestataire de paiement",
		"billing_not_configured": "Le paiement n'est pas configuré",
		"invalid_signature":      "Signature invalide",
		"rate_limited":           "Trop de requêtes, réessayez plus tard",
		"method_not_allowed":     "Méthode non autorisée",
		"internal_error":         "Erreur interne du serveur",
		"preview_quote":          "Devis",
		"preview_issuer":         "Émetteur",
		"preview_client":         "Client",
		"preview_description":    "Description",
		"preview_quantity":       "Qté",
		"preview_unit_price":     "Prix unit.",
		"preview_vat":            "TVA",
		"preview_total":          "Total",
		"preview_total_ht":       "Total HT",
		"preview_total_ttc":      "Total TTC",
		"preview_valid_until":    "Valable jusqu'au",
		"preview_notes":          "Notes",
	},
	EN: {
		"required":               "Required",
		"invalid_email":          "Invalid email address",
		"must_be_positive":       "Must be positive",
		"must_not_be_negative":   "Must not be negative",
		"invalid_tva_rate":       "Invalid VAT rate",
		"too_short":              "Too short",
		"too_long":               "Too long",
		"invalid":                "Invalid value",
		"validation_failed":      "Invalid data",
		"invalid_json":           "Invalid JSON request body",
		"missing_fields":         "Email and password are required",
		"client_name_required":   "Client name is required",
		"email_exists":           "This email is already registered",
		"invalid_credentials":    "Invalid email or password",
		"unauthorized":           "Authentication required",
		"invalid_token":          "Invalid or expired token",
		"forbidden":              "Forbidden",
		"user_not_found":         "User not found",
		"quote_not_found":        "Quote not found",
		"quote_number_exists":    "This quote number already exists",
		"unknown_plan":           "This price matches no plan",
		"not_found":              "Not found",
		"quota_exceeded":         "Not enough credits. Upgrade your plan to continue.",
		"invalid_price_id":       "Invalid price id",
		"invalid_status":         "Invalid quote status",
		"payment_provider_error": "Payment provider error",
		"billing_not_configured": "Billing is not configured",
		"invalid_signature":      "Invalid signature",
		"rate_limited":           "Too many requests, try again later",
		"method_not_allowed":     "Method not allowed",
		"internal_error":         "Internal server error",
		"preview_quote":          "Quote",
		"preview_issuer":         "From",
		"preview_client":         "Client",
		"preview_description":    "Description",
		"preview_quantity":       "Qty",
		"preview_unit_price":     "Unit price",
		"preview_vat":            "VAT",
		"preview_total":          "Total",
		"preview_total_ht":       "Subtotal",
		"preview_total_ttc":      "Total incl. VAT",
		"preview_valid_until":    "Valid until",
		"preview_notes":          "Notes",
	},
}
