package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mclink/internal/config"
	"github.com/router-for-me/mclink/internal/models"
	"github.com/router-for-me/mclink/internal/security"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

var (
	supportedLanguages = []language.Tag{language.English, language.Ukrainian}
	languageMatcher    = language.NewMatcher(supportedLanguages)
)

// matchLanguage maps an Accept-Language header onto a supported code.
func matchLanguage(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	tags, _, errParse := language.ParseAcceptLanguage(header)
	if errParse != nil || len(tags) == 0 {
		return "", false
	}
	_, index, confidence := languageMatcher.Match(tags...)
	if confidence == language.No {
		return "", false
	}
	base, _ := supportedLanguages[index].Base()
	return base.String(), true
}

// Languages picks the response language: Accept-Language first, then the
// signed-in user's preference, then English.
func Languages(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang, ok := matchLanguage(c.GetHeader("Accept-Language"))
		if !ok {
			lang = preferredLanguage(c, db, jwtCfg)
		}
		c.Set(ContextLanguage, lang)
		c.Header("Content-Language", lang)
		c.Next()
	}
}

func preferredLanguage(c *gin.Context, db *gorm.DB, jwtCfg config.JWTConfig) string {
	token := bearerToken(c)
	if token == "" || db == nil {
		return models.LanguageEnglish
	}
	claims, errJWT := security.ParseUserToken(jwtCfg.Secret, token, security.TokenTypeAccess)
	if errJWT != nil {
		return models.LanguageEnglish
	}
	var user models.User
	if errFind := db.WithContext(c.Request.Context()).
		Select("id", "preferred_language").
		First(&user, claims.UserID).Error; errFind != nil {
		return models.LanguageEnglish
	}
	switch user.PreferredLanguage {
	case models.LanguageEnglish, models.LanguageUkrainian:
		return user.PreferredLanguage
	default:
		return models.LanguageEnglish
	}
}
