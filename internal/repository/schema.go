package repository

import (
	"context"

	"github.com/uptrace/bun"
)

// sqlite DDL for every persisted table. The platform owns real migrations;
// this bootstrap covers local development and tests.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id TEXT NOT NULL PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT,
    role TEXT NOT NULL,
    telefono TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`,
	`CREATE TABLE IF NOT EXISTS pacientes (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL UNIQUE,
    nombre TEXT NOT NULL,
    apellido TEXT,
    fecha_nacimiento TIMESTAMP NULL,
    genero TEXT,
    email TEXT,
    telefono TEXT,
    peso_inicial REAL,
    estatura REAL,
    alergias TEXT,
    id_nutricionista TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);`,
	`CREATE TABLE IF NOT EXISTS nutricionistas (
    id TEXT NOT NULL PRIMARY KEY,
    nombre TEXT NOT NULL,
    email TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`,
	`CREATE TABLE IF NOT EXISTS evaluaciones (
    id TEXT NOT NULL PRIMARY KEY,
    id_paciente TEXT NOT NULL,
    id_nutricionista TEXT,
    tipo TEXT NOT NULL,
    fecha TIMESTAMP NOT NULL,
    observaciones TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (id_paciente) REFERENCES pacientes (id) ON DELETE CASCADE
);`,
	`CREATE TABLE IF NOT EXISTS mediciones (
    id TEXT NOT NULL PRIMARY KEY,
    id_evaluacion TEXT NOT NULL,
    peso_kg REAL NOT NULL,
    altura_m REAL NOT NULL,
    porc_grasa REAL,
    masa_magra_kg REAL,
    FOREIGN KEY (id_evaluacion) REFERENCES evaluaciones (id) ON DELETE CASCADE
);`,
	`CREATE TABLE IF NOT EXISTS servicios (
    id TEXT NOT NULL PRIMARY KEY,
    nombre TEXT NOT NULL,
    costo REAL NOT NULL,
    duracion_dias INTEGER NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS suscripciones (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    servicio_id TEXT NOT NULL,
    estado TEXT NOT NULL,
    fecha_inicio TIMESTAMP NOT NULL,
    fecha_fin TIMESTAMP NOT NULL,
    proximo_cobro TIMESTAMP NOT NULL,
    metodo_pago TEXT,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
    FOREIGN KEY (servicio_id) REFERENCES servicios (id)
);`,
	`CREATE TABLE IF NOT EXISTS access_tokens (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    token_digest TEXT NOT NULL,
    last_used_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);`,
}

// CreateSchema creates every table this service persists to.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
